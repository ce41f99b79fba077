// Command pdftrans translates PDF documents into mono and bilingual PDFs.
package main

import (
	"fmt"
	"os"

	"pdf-translator/internal/logger"
)

func main() {
	err := Execute()
	// 出错时 cobra 不执行 PostRun，日志在这里统一关闭
	logger.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}
