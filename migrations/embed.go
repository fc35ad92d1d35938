// Package migrations 内嵌数据库结构变更脚本，按文件名顺序执行
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
