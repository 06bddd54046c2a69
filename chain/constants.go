package chain

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/web3guy0/spreadbot/types"
)

// Arbitrum One
const ArbitrumChainID = 42161

// Public endpoints used when RPC_URLS is not set
var DefaultRPCURLs = []string{
	"https://arb1.arbitrum.io/rpc",
	"https://arbitrum.llamarpc.com",
	"https://arbitrum-one.publicnode.com",
}

var (
	UniswapV3Quoter = common.HexToAddress("0xb27308f9F90D607463bb33eA1BeBb41C27CE5AB6")

	// Chainlink ETH/USD aggregator
	ChainlinkETHUSD = common.HexToAddress("0x639Fe6ab55C921f74e7fac1ee960C0B6293ba612")
)

// KnownTokens: lookup by symbol string
var KnownTokens = map[string]types.Token{
	"WETH":  {Symbol: "WETH", Address: common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"), Decimals: 18},
	"USDC":  {Symbol: "USDC", Address: common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"), Decimals: 6},
	"USDT":  {Symbol: "USDT", Address: common.HexToAddress("0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9"), Decimals: 6},
	"DAI":   {Symbol: "DAI", Address: common.HexToAddress("0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1"), Decimals: 18},
	"WBTC":  {Symbol: "WBTC", Address: common.HexToAddress("0x2f2a2543B76A4166549F7aaB2e75Bef0aefC5B0f"), Decimals: 8},
	"ARB":   {Symbol: "ARB", Address: common.HexToAddress("0x912CE59144191C1204E64559FE8253a0e49E6548"), Decimals: 18},
	"GMX":   {Symbol: "GMX", Address: common.HexToAddress("0xfc5A1A6EB076a2C7aD06eD22C90d7E710E35ad0a"), Decimals: 18},
	"LINK":  {Symbol: "LINK", Address: common.HexToAddress("0xf97f4df75117a78c1A5a0DBb814Af92458539FB4"), Decimals: 18},
	"MAGIC": {Symbol: "MAGIC", Address: common.HexToAddress("0x539bdE0d7Dbd336b79148AA742883198BBF60342"), Decimals: 18},
}

// V2DEX is a constant-product exchange reachable through its factory
type V2DEX struct {
	Name    string
	Factory common.Address
	FeeBps  int64
}

// KnownV2DEXes: Uniswap V2 forks deployed on Arbitrum
var KnownV2DEXes = map[string]V2DEX{
	"sushiswap": {Name: "SushiSwap", Factory: common.HexToAddress("0xc35DADB65012eC5796536bD9864eD8773aBc74C4"), FeeBps: 30},
	"camelot":   {Name: "Camelot", Factory: common.HexToAddress("0x6EcCab422D763aC031210895C81787E87B43A652"), FeeBps: 30},
}

// LookupToken resolves a symbol case-insensitively
func LookupToken(symbol string) (types.Token, bool) {
	t, ok := KnownTokens[strings.ToUpper(strings.TrimSpace(symbol))]
	return t, ok
}

// LookupV2DEX resolves a DEX name case-insensitively
func LookupV2DEX(name string) (V2DEX, bool) {
	d, ok := KnownV2DEXes[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// NetworkName returns a display name for a chain id
func NetworkName(chainID int64) string {
	if chainID == ArbitrumChainID {
		return "Arbitrum One"
	}
	return "chain " + strconv.FormatInt(chainID, 10)
}
