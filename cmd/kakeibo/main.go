// Command kakeibo は家計簿アプリケーションを起動する。
//
// 使い方:
//
//	kakeibo [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/kakeibo/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "kakeibo: %v\n", err)
		os.Exit(1)
	}
}
