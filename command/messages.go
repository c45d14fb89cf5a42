package command

import (
	"strings"

	"github.com/goliatone/go-iap/core"
)

const (
	TypeSubmitReceipt    = "iap.command.receipt.submit"
	TypeRegisterApp      = "iap.command.app.register"
	TypeRegisterEndpoint = "iap.command.endpoint.register"
	TypeSyncCatalog      = "iap.command.catalog.sync"
)

type SubmitReceiptMessage struct {
	Input core.SubmitReceiptInput
}

func (SubmitReceiptMessage) Type() string { return TypeSubmitReceipt }

func (m SubmitReceiptMessage) Validate() error {
	if strings.TrimSpace(m.Input.AppID) == "" {
		return commandValidationError("app_id", "app id is required")
	}
	if strings.TrimSpace(m.Input.AppUserID) == "" {
		return commandValidationError("app_user_id", "app user id is required")
	}
	if err := m.Input.Store.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid store")
	}
	if strings.TrimSpace(m.Input.ReceiptData) == "" {
		return commandValidationError("receipt_data", "receipt data is required")
	}
	return nil
}

type RegisterAppMessage struct {
	Input core.RegisterAppInput
}

func (RegisterAppMessage) Type() string { return TypeRegisterApp }

func (m RegisterAppMessage) Validate() error {
	if strings.TrimSpace(m.Input.Name) == "" {
		return commandValidationError("name", "app name is required")
	}
	if err := m.Input.Platform.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid platform")
	}
	if strings.TrimSpace(m.Input.BundleID) == "" {
		return commandValidationError("bundle_id", "bundle id is required")
	}
	return nil
}

type RegisterEndpointMessage struct {
	Input core.CreateEndpointInput
}

func (RegisterEndpointMessage) Type() string { return TypeRegisterEndpoint }

func (m RegisterEndpointMessage) Validate() error {
	if strings.TrimSpace(m.Input.AppID) == "" {
		return commandValidationError("app_id", "app id is required")
	}
	if strings.TrimSpace(m.Input.URL) == "" {
		return commandValidationError("url", "endpoint url is required")
	}
	return nil
}

type SyncCatalogMessage struct {
	AppID string
}

func (SyncCatalogMessage) Type() string { return TypeSyncCatalog }

func (m SyncCatalogMessage) Validate() error {
	if strings.TrimSpace(m.AppID) == "" {
		return commandValidationError("app_id", "app id is required")
	}
	return nil
}
