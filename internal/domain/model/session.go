package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AdSession is the client's projection of a server-owned ad session.
type AdSession struct {
	SessionID     string
	Task          Task
	Status        string
	Provider      ProviderConfig
	AllowSimulate bool
	Credited      bool
	ExpiresAt     time.Time
	AdURL         string
}

// ProviderConfig is either ConfiguredProvider or UnconfiguredProvider.
type ProviderConfig interface {
	providerConfig()
}

type ConfiguredProvider struct {
	Name         string
	SDKURL       string
	ShowFunction string
	ZoneID       string
	YMID         string
	RequestVar   string
}

type UnconfiguredProvider struct {
	Name string
}

func (ConfiguredProvider) providerConfig()   {}
func (UnconfiguredProvider) providerConfig() {}

// NewProviderConfig builds the variant from the loose fields the backend
// sends. A provider is configured only when both the script URL and the show
// function are known; an empty show function falls back to show_<zone>.
func NewProviderConfig(name string, enabled bool, sdkURL, showFn, zoneID, ymid, requestVar string) ProviderConfig {
	sdkURL = strings.TrimSpace(sdkURL)
	showFn = strings.TrimSpace(showFn)
	zoneID = strings.TrimSpace(zoneID)
	if showFn == "" && zoneID != "" {
		showFn = "show_" + zoneID
	}
	if !enabled || sdkURL == "" || showFn == "" {
		return UnconfiguredProvider{Name: name}
	}
	return ConfiguredProvider{
		Name:         name,
		SDKURL:       sdkURL,
		ShowFunction: showFn,
		ZoneID:       zoneID,
		YMID:         strings.TrimSpace(ymid),
		RequestVar:   strings.TrimSpace(requestVar),
	}
}

type SessionStatus struct {
	Status     string
	Credited   bool
	Balance    decimal.Decimal
	HasBalance bool
	AdsWatched int
	DailyAds   int
	DailyLimit int
}
