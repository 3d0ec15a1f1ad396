package utils

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFormatClock(t *testing.T) {
	cases := map[int]string{
		0:     "00:00:00",
		-4:    "00:00:00",
		59:    "00:00:59",
		61:    "00:01:01",
		3725:  "01:02:05",
		86399: "23:59:59",
	}
	for in, want := range cases {
		if got := FormatClock(in); got != want {
			t.Errorf("FormatClock(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatUSD(t *testing.T) {
	if got := FormatUSD(decimal.RequireFromString("1.9")); got != "$1.900" {
		t.Fatalf("unexpected usd format %q", got)
	}
}

func TestEncodeURLParams(t *testing.T) {
	params := struct {
		TelegramID int64  `url:"telegram_id"`
		DeviceID   string `url:"device_id"`
	}{TelegramID: 7, DeviceID: "dev_abc"}
	got, err := EncodeURLParams(params)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got != "device_id=dev_abc&telegram_id=7" {
		t.Fatalf("unexpected query %q", got)
	}
}

func TestBeautifyJSONPassesThroughNonJSON(t *testing.T) {
	if got := BeautifyJSON([]byte("plain")); got != "plain" {
		t.Fatalf("expected passthrough, got %q", got)
	}
}
