package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// テストで端末を使わずに済むよう差し替え可能にしている。
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// prompt はプロンプトを表示して1行読み込む。defaultValueは空入力時に使う。
func prompt(reader *bufio.Reader, w io.Writer, label, defaultValue string) (string, error) {
	if defaultValue != "" {
		fmt.Fprintf(w, "%s [%s]: ", label, defaultValue)
	} else {
		fmt.Fprintf(w, "%s: ", label)
	}
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		if defaultValue == "" && err != nil {
			return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), io.ErrUnexpectedEOF)
		}
		return defaultValue, nil
	}
	return line, nil
}

// promptPassword はパスワードを読み込む。
// 標準入力が端末の場合はエコーせずに読み、それ以外（パイプ）の場合は1行読む。
func promptPassword(reader *bufio.Reader, w io.Writer) (string, error) {
	fmt.Fprint(w, "Password: ")
	fd := int(os.Stdin.Fd())
	if isTerminal(fd) {
		pw, err := readPassword(fd)
		fmt.Fprintln(w)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(pw), nil
	}

	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
