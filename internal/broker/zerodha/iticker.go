package zerodha

import (
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"
)

// tickerConn is the subscription surface of the Kite ticker connection.
type tickerConn interface {
	Subscribe(tokens []uint32) error
	Unsubscribe(tokens []uint32) error
	SetMode(mode kiteticker.Mode, tokens []uint32) error
}

var _ tickerConn = (*kiteticker.Ticker)(nil)
