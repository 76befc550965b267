package app

// Command はサブコマンドで指定する起動モード。
type Command string

// サブコマンド一覧
const (
	CommandServe       Command = "serve"       // HTTPサーバー（既定）
	CommandWorker      Command = "worker"      // 期限切れセッションの定期削除
	CommandMigrate     Command = "migrate"     // スキーマのマイグレーション
	CommandHealthcheck Command = "healthcheck" // distrolessイメージ用のヘルスチェック
)

var commands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand はos.Args[1:]の先頭要素からサブコマンドを決める。
// 引数がない場合や未知の値はserveとして扱い、2番目以降の引数は見ない。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := commands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}
