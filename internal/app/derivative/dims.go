package derivative

// FitDimensions 计算等比缩放后的目标尺寸，只缩小不放大。
//
// 先按高度约束、再按宽度约束，两步顺序不能交换：第二步用的是第一步更新后的宽高。
// 例如 1000x500，maxHeight=400 -> 800x400，再 maxWidth=200 -> 200x100。
// 0 表示该方向不限制；结果截断取整（不四舍五入），最小为 1 像素。
func FitDimensions(origWidth, origHeight, maxWidth, maxHeight int) (int, int) {
	width := float64(origWidth)
	height := float64(origHeight)

	if maxHeight > 0 && height > float64(maxHeight) {
		// 先乘后除：整数结果时没有浮点误差
		width = width * float64(maxHeight) / height
		height = float64(maxHeight)
	}

	if maxWidth > 0 && width > float64(maxWidth) {
		height = height * float64(maxWidth) / width
		width = float64(maxWidth)
	}

	return atLeastOne(int(width)), atLeastOne(int(height))
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
