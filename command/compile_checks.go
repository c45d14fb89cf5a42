package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[SubmitReceiptMessage]    = (*SubmitReceiptCommand)(nil)
	_ gocmd.Commander[RegisterAppMessage]      = (*RegisterAppCommand)(nil)
	_ gocmd.Commander[RegisterEndpointMessage] = (*RegisterEndpointCommand)(nil)
	_ gocmd.Commander[SyncCatalogMessage]      = (*SyncCatalogCommand)(nil)
)
