package models

// DefaultDecimals is used when a token reports no decimal precision.
const DefaultDecimals = 18

// TokenBalance is a single entry of a token balance listing, holding the raw
// integer amount as decimal or 0x-prefixed hex. The data API reports contracts
// it could not read with a null balance and an error.
type TokenBalance struct {
	ContractAddress string `json:"contractAddress"`
	TokenBalance    string `json:"tokenBalance"`
	Error           string `json:"error,omitempty"`
}

// Readable reports whether the entry carries a balance.
func (b TokenBalance) Readable() bool {
	return b.Error == "" && b.TokenBalance != ""
}

// TokenBalances is the balance listing returned for one owner address.
type TokenBalances struct {
	Address       string         `json:"address"`
	TokenBalances []TokenBalance `json:"tokenBalances"`
}

// TokenMetadata describes a token contract. Nil pointers mean the data API
// had no value for the field.
type TokenMetadata struct {
	Name     string  `json:"name"`
	Symbol   string  `json:"symbol"`
	Decimals *int    `json:"decimals"`
	Logo     *string `json:"logo"`
}

// Usable reports whether the token has both a name and a symbol.
func (t TokenMetadata) Usable() bool {
	return t.Name != "" && t.Symbol != ""
}

// DecimalsOrDefault returns the token precision, falling back to DefaultDecimals.
func (t TokenMetadata) DecimalsOrDefault() int {
	if t.Decimals == nil {
		return DefaultDecimals
	}
	return *t.Decimals
}

// LogoURL returns the logo reference or an empty string.
func (t TokenMetadata) LogoURL() string {
	if t.Logo == nil {
		return ""
	}
	return *t.Logo
}

// QueryResult holds the retained balances and their metadata.
// Metadata[i] always describes Balances[i].ContractAddress.
type QueryResult struct {
	Address  string
	Balances []TokenBalance
	Metadata []TokenMetadata
}

// DisplayRecord is one rendered token tile.
type DisplayRecord struct {
	ContractAddress string `json:"contractAddress"`
	Name            string `json:"name"`
	Symbol          string `json:"symbol"`
	Decimals        int    `json:"decimals"`
	RawBalance      string `json:"rawBalance"`
	Balance         string `json:"balance"`
	Logo            string `json:"logo,omitempty"`
}

// EndpointResult holds the self-test result for one JSON-RPC endpoint.
type EndpointResult struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Status  string `json:"status"` // "ok", "error" or "skipped"
	ChainID string `json:"chain_id,omitempty"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TestReport holds the results of the configuration test.
type TestReport struct {
	ConfigPath      string           `json:"config_path"`
	ValidStructure  bool             `json:"valid_structure"`
	StructureErrors []string         `json:"structure_errors,omitempty"`
	Network         string           `json:"network"`
	TargetChainID   string           `json:"target_chain_id"`
	Endpoints       []EndpointResult `json:"endpoints,omitempty"`
	ChainMismatch   bool             `json:"chain_mismatch"`
}
