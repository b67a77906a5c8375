// Command fusiontrader runs the regime-aware decision engine against a market
// feed and trades the result on a paper broker.
//
// Usage:
//
//	fusiontrader init
//	fusiontrader decide --feed feed.json
//	fusiontrader serve --config config.yaml
//	fusiontrader journal --after 100
//
// Environment variables (also read from .env):
//
//	FUSION_CONFIG, FUSION_FEED, FUSION_HTTP_ADDR, FUSION_JOURNAL_DIR,
//	FUSION_DB_PATH, FUSION_MODEL_PATH, FUSION_FEED_TIMEOUT
package main

import (
	"context"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
