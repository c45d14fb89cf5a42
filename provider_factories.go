package iap

import (
	"github.com/goliatone/go-iap/core"
	"github.com/goliatone/go-iap/providers/apple"
	"github.com/goliatone/go-iap/providers/play"
)

func AppleStoreClient(cfg apple.Config) (core.StoreClient, error) {
	return apple.New(cfg)
}

func PlayStoreClient(cfg play.Config) (core.StoreClient, error) {
	return play.New(cfg)
}
