package bot

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// DefaultSecretVars are the variables secret rotation may write when none
// are configured.
var DefaultSecretVars = []string{"WHISK_COOKIE", "WHISK_AUTH_TOKEN", "OPENAI_API_KEY"}

func (b *Bot) rotateSecret(ctx context.Context, userID string, cmd Command, to target) error {
	if _, ok := b.admins[userID]; !ok {
		log.Warn().Str("user_id", userID).Msg("bot: secret rotation denied")
		return b.sendText(ctx, to, "无权限")
	}
	if cmd.Var == "" || cmd.Value == "" {
		return b.sendText(ctx, to, "用法：whisk令牌 <变量名> <值>")
	}
	if _, ok := b.secrets[cmd.Var]; !ok {
		return b.sendText(ctx, to, fmt.Sprintf("不支持的变量 %s", cmd.Var))
	}
	if b.persist == nil {
		return b.sendText(ctx, to, "未配置令牌存储")
	}
	path, err := b.persist(cmd.Var, cmd.Value)
	if err != nil {
		return err
	}
	log.Info().Str("user_id", userID).Str("var", cmd.Var).Str("path", path).Msg("bot: secret rotated")
	return b.sendText(ctx, to, fmt.Sprintf("已更新 %s", cmd.Var))
}
