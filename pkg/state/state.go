// Package state is the page state record and its transitions. Every
// transition returns a new State; the receiver is never modified.
package state

import (
	"time"

	"erc20idx/pkg/models"
)

// Placeholder is shown until the first query has run.
const Placeholder = "Please make a query! This may take a few seconds..."

// FilterNotice heads the token grid; tokens without a name or symbol are not listed.
const FilterNotice = "This app displays only ERC20 tokens that have valid names and symbols"

type State struct {
	// Address is the current content of the address field.
	Address   string `json:"address"`
	ChainID   string `json:"chainId,omitempty"`
	Connected bool   `json:"connected"`

	Records []models.DisplayRecord `json:"records"`
	// ResultAddress is the address Records belong to.
	ResultAddress string `json:"resultAddress,omitempty"`
	HasQueried    bool   `json:"hasQueried"`
	Loading       bool   `json:"loading"`
	QueryID       string `json:"queryId,omitempty"`

	Err       string    `json:"error,omitempty"`
	InputErr  string    `json:"inputError,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SessionReady records a connected wallet and fills the address field.
func (s State) SessionReady(addr, chainID string, now time.Time) State {
	s.Address = addr
	s.ChainID = chainID
	s.Connected = true
	s.Err = ""
	s.InputErr = ""
	s.UpdatedAt = now
	return s
}

// SessionFailed records a wallet failure. A non-empty addr obtained before
// the failure still fills the address field.
func (s State) SessionFailed(addr string, err error, now time.Time) State {
	if addr != "" {
		s.Address = addr
	}
	s.Connected = addr != ""
	s.Err = errText(err)
	s.UpdatedAt = now
	return s
}

// EditAddress replaces the address field and clears the input error.
func (s State) EditAddress(addr string, now time.Time) State {
	s.Address = addr
	s.InputErr = ""
	s.UpdatedAt = now
	return s
}

// InvalidAddress rejects the address field. Results are left alone.
func (s State) InvalidAddress(addr string, err error, now time.Time) State {
	s.Address = addr
	s.InputErr = errText(err)
	s.UpdatedAt = now
	return s
}

// LoadStart begins query id, superseding any query in flight.
func (s State) LoadStart(id, addr string, now time.Time) State {
	s.Address = addr
	s.QueryID = id
	s.Loading = true
	s.Err = ""
	s.InputErr = ""
	s.UpdatedAt = now
	return s
}

// LoadSuccess replaces the results wholesale. Results of a superseded query
// are ignored.
func (s State) LoadSuccess(id, resultAddr string, records []models.DisplayRecord, now time.Time) State {
	if id != s.QueryID || !s.Loading {
		return s
	}
	s.Records = append([]models.DisplayRecord(nil), records...)
	s.ResultAddress = resultAddr
	s.HasQueried = true
	s.Loading = false
	s.Err = ""
	s.UpdatedAt = now
	return s
}

// LoadError ends query id with err. Earlier results stay visible under
// ResultAddress.
func (s State) LoadError(id string, err error, now time.Time) State {
	if id != s.QueryID || !s.Loading {
		return s
	}
	s.Loading = false
	s.Err = errText(err)
	s.UpdatedAt = now
	return s
}

// ShowPlaceholder reports whether the renderer should show Placeholder
// instead of tiles.
func (s State) ShowPlaceholder() bool {
	return !s.HasQueried
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
