package derivative

import "strings"

// DefaultSeparator 连接 slug 各段的分隔符，同时也出现在缓存文件名里。
const DefaultSeparator = "-"

// Slugify 把任意展示名转成可以安全落盘的 ASCII slug，例如 "Été & Co" -> "ete-co"。
//
// 规则：去掉首尾 '/'，ASCII 小写，按 transliterations 做字面替换，
// 再把 [a-z0-9] 以外的连续字符折叠成一个分隔符，最后去掉首尾分隔符。
// 不依赖 locale，同样的输入永远得到同样的输出；空串得到空串。
func Slugify(text string) string {
	return SlugifyWith(text, DefaultSeparator)
}

// SlugifyWith is Slugify with a custom separator.
func SlugifyWith(text, sep string) string {
	s := strings.Trim(text, "/")
	s = asciiLower(s)
	s = transliterator.Replace(s)

	var b strings.Builder
	b.Grow(len(s))
	pending := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if ('a' <= c && c <= 'z') || ('0' <= c && c <= '9') {
			if pending {
				b.WriteString(sep)
				pending = false
			}
			b.WriteByte(c)
			continue
		}
		// 跳过前导分隔符；中间的连续非法字符只记一次
		if b.Len() > 0 {
			pending = true
		}
	}
	return b.String()
}

// asciiLower 只折叠 A-Z，多字节字符原样保留给替换表处理，
// 大写的 Latin/Cyrillic 字母在表里有自己的条目。
func asciiLower(s string) string {
	for i := 0; i < len(s); i++ {
		if 'A' <= s[i] && s[i] <= 'Z' {
			b := []byte(s)
			for j := i; j < len(b); j++ {
				if 'A' <= b[j] && b[j] <= 'Z' {
					b[j] += 'a' - 'A'
				}
			}
			return string(b)
		}
	}
	return s
}

// transliterator 在包初始化时构建一次，之后只读，可并发使用。
var transliterator = strings.NewReplacer(transliterations...)

// transliterations 是 old,new 成对排列的字面替换表。
// 键都是单个字符或固定的 HTML 实体，不需要最长匹配。
var transliterations = []string{
	"&amp;", "and", "&", "and", "@", "at", "©", "c", "®", "r", "™", "tm",

	// Latin-1
	"À", "a", "Á", "a", "Â", "a", "Ã", "a", "Ä", "a", "Å", "a", "Æ", "ae", "Ç", "c",
	"È", "e", "É", "e", "Ê", "e", "Ë", "e", "Ì", "i", "Í", "i", "Î", "i", "Ï", "i",
	"Ð", "d", "Ñ", "n", "Ò", "o", "Ó", "o", "Ô", "o", "Õ", "o", "Ö", "o", "Ø", "o",
	"Ù", "u", "Ú", "u", "Û", "u", "Ü", "u", "Ý", "y", "Þ", "p", "ß", "ss",
	"à", "a", "á", "a", "â", "a", "ã", "a", "ä", "a", "å", "a", "æ", "ae", "ç", "c",
	"è", "e", "é", "e", "ê", "e", "ë", "e", "ì", "i", "í", "i", "î", "i", "ï", "i",
	"ð", "d", "ñ", "n", "ò", "o", "ó", "o", "ô", "o", "õ", "o", "ö", "o", "ø", "o",
	"ù", "u", "ú", "u", "û", "u", "ü", "u", "ý", "y", "þ", "p", "ÿ", "y",

	// Latin Extended-A
	"Ā", "a", "ā", "a", "Ă", "a", "ă", "a", "Ą", "a", "ą", "a",
	"Ć", "c", "ć", "c", "Ĉ", "c", "ĉ", "c", "Ċ", "c", "ċ", "c", "Č", "c", "č", "c",
	"Ď", "d", "ď", "d", "Đ", "d", "đ", "d",
	"Ē", "e", "ē", "e", "Ĕ", "e", "ĕ", "e", "Ė", "e", "ė", "e", "Ę", "e", "ę", "e", "Ě", "e", "ě", "e",
	"Ĝ", "g", "ĝ", "g", "Ğ", "g", "ğ", "g", "Ġ", "g", "ġ", "g", "Ģ", "g", "ģ", "g",
	"Ĥ", "h", "ĥ", "h", "Ħ", "h", "ħ", "h",
	"Ĩ", "i", "ĩ", "i", "Ī", "i", "ī", "i", "Ĭ", "i", "ĭ", "i", "Į", "i", "į", "i", "İ", "i", "ı", "i",
	"Ĳ", "ij", "ĳ", "ij", "Ĵ", "j", "ĵ", "j", "Ķ", "k", "ķ", "k", "ĸ", "k",
	"Ĺ", "l", "ĺ", "l", "Ļ", "l", "ļ", "l", "Ľ", "l", "ľ", "l", "Ŀ", "l", "ŀ", "l", "Ł", "l", "ł", "l",
	"Ń", "n", "ń", "n", "Ņ", "n", "ņ", "n", "Ň", "n", "ň", "n", "ŉ", "n", "Ŋ", "n", "ŋ", "n",
	"Ō", "o", "ō", "o", "Ŏ", "o", "ŏ", "o", "Ő", "o", "ő", "o", "Œ", "oe", "œ", "oe",
	"Ŕ", "r", "ŕ", "r", "Ŗ", "r", "ŗ", "r", "Ř", "r", "ř", "r",
	"Ś", "s", "ś", "s", "Ŝ", "s", "ŝ", "s", "Ş", "s", "ş", "s", "Š", "s", "š", "s",
	"Ţ", "t", "ţ", "t", "Ť", "t", "ť", "t", "Ŧ", "t", "ŧ", "t",
	"Ũ", "u", "ũ", "u", "Ū", "u", "ū", "u", "Ŭ", "u", "ŭ", "u", "Ů", "u", "ů", "u",
	"Ű", "u", "ű", "u", "Ų", "u", "ų", "u",
	"Ŵ", "w", "ŵ", "w", "Ŷ", "y", "ŷ", "y", "Ÿ", "y",
	"Ź", "z", "ź", "z", "Ż", "z", "ż", "z", "Ž", "z", "ž", "z", "ſ", "z",

	// Latin Extended-B
	"Ə", "e", "ə", "e", "ƒ", "f", "Ơ", "o", "ơ", "o", "Ư", "u", "ư", "u",
	"Ǎ", "a", "ǎ", "a", "Ǐ", "i", "ǐ", "i", "Ǒ", "o", "ǒ", "o", "Ǔ", "u", "ǔ", "u",
	"Ǖ", "u", "ǖ", "u", "Ǘ", "u", "ǘ", "u", "Ǚ", "u", "ǚ", "u", "Ǜ", "u", "ǜ", "u",
	"Ǻ", "a", "ǻ", "a", "Ǽ", "ae", "ǽ", "ae", "Ǿ", "o", "ǿ", "o",

	// Cyrillic
	"Ё", "jo", "Є", "e", "І", "i", "Ї", "i", "Ґ", "g",
	"А", "a", "Б", "b", "В", "v", "Г", "g", "Д", "d", "Е", "e", "Ж", "zh", "З", "z",
	"И", "i", "Й", "j", "К", "k", "Л", "l", "М", "m", "Н", "n", "О", "o", "П", "p",
	"Р", "r", "С", "s", "Т", "t", "У", "u", "Ф", "f", "Х", "h", "Ц", "c", "Ч", "ch",
	"Ш", "sh", "Щ", "sch", "Ъ", "-", "Ы", "y", "Ь", "-", "Э", "je", "Ю", "ju", "Я", "ja",
	"а", "a", "б", "b", "в", "v", "г", "g", "д", "d", "е", "e", "ж", "zh", "з", "z",
	"и", "i", "й", "j", "к", "k", "л", "l", "м", "m", "н", "n", "о", "o", "п", "p",
	"р", "r", "с", "s", "т", "t", "у", "u", "ф", "f", "х", "h", "ц", "c", "ч", "ch",
	"ш", "sh", "щ", "sch", "ъ", "-", "ы", "y", "ь", "-", "э", "je", "ю", "ju", "я", "ja",
	"ё", "jo", "є", "e", "і", "i", "ї", "i", "ґ", "g",

	// Hebrew
	"א", "a", "ב", "b", "ג", "g", "ד", "d", "ה", "h", "ו", "v", "ז", "z", "ח", "h",
	"ט", "t", "י", "i", "ך", "k", "כ", "k", "ל", "l", "ם", "m", "מ", "m", "ן", "n",
	"נ", "n", "ס", "s", "ע", "e", "ף", "p", "פ", "p", "ץ", "c", "צ", "c", "ק", "q",
	"ר", "r", "ש", "w", "ת", "t",
}
