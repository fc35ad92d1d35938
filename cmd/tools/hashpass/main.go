// hashpass 生成 ADMIN_PASSWORD_HASH 的值
package main

import (
	"fmt"
	"log"
	"os"

	"imgopt.local/internal/platform/auth"
)

func main() {
	if len(os.Args) != 2 {
		log.Fatal("usage: go run ./cmd/tools/hashpass <password>")
	}
	hash, err := auth.HashPassword(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("ADMIN_PASSWORD_HASH=%s\n", hash)
}
