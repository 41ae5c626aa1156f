package app

import (
	"fmt"
	"strings"
)

// Command はsrikandiサーバーのサブコマンド。
type Command string

const (
	// CommandServe はWeb画面とJSON APIを提供する。引数省略時の既定。
	CommandServe Command = "serve"
	// CommandWorker はクリーンアップを定期実行する常駐プロセス。
	CommandWorker Command = "worker"
	// CommandCleanup はクリーンアップを1回だけ実行して終了する（cron用）。
	CommandCleanup Command = "cleanup"
	// CommandMigrate は未適用のマイグレーションを適用する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は稼働中のサーバーの/healthを確認する。
	// distrolessイメージにはcurlが無いため、Dockerのヘルスチェックから呼ぶ。
	CommandHealthcheck Command = "healthcheck"
)

// Commands は利用可能なサブコマンドの一覧。
var Commands = []Command{CommandServe, CommandWorker, CommandCleanup, CommandMigrate, CommandHealthcheck}

// ParseCommand は先頭の引数からサブコマンドを解析する。
// 引数が無い場合はCommandServe。未知のサブコマンドはエラーにする。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 || args[0] == "" {
		return CommandServe, nil
	}
	for _, c := range Commands {
		if string(c) == args[0] {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown command %q: must be one of %s", args[0], usage())
}

func usage() string {
	names := make([]string, len(Commands))
	for i, c := range Commands {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
