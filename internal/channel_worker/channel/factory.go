package channel

import (
	"fmt"
	"log/slog"

	"github.com/postcaster/golang_services/internal/platform/config"
)

// New builds the channel named by cfg.ChannelName, rate limited per
// cfg.ChannelRatePerSec.
func New(cfg *config.Config, logger *slog.Logger) (Channel, error) {
	var ch Channel
	switch cfg.ChannelName {
	case "deso":
		if cfg.DesoPublicKey == "" {
			return nil, fmt.Errorf("channel deso requires DESO_PUBLIC_KEY")
		}
		ch = NewDesoClient(logger, cfg.DesoNodeURL, cfg.DesoPublicKey, nil)
	case "x":
		if cfg.XBearerToken == "" {
			return nil, fmt.Errorf("channel x requires X_BEARER_TOKEN")
		}
		ch = NewXClient(logger, cfg.XAPIURL, cfg.XBearerToken, nil)
	case "mock":
		ch = NewMock(logger)
	default:
		return nil, fmt.Errorf("unknown channel %q", cfg.ChannelName)
	}
	return NewRateLimited(ch, cfg.ChannelRatePerSec), nil
}
