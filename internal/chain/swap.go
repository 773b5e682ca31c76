package chain

import (
	"fmt"
	"math/big"
	"strings"
)

// SwapEvent is the normalized decode of a pool swap log, independent of
// which event layout the pool emits.
type SwapEvent struct {
	Amount0      *big.Int
	Amount1      *big.Int
	SqrtPriceX96 *big.Int
}

const wordHexLen = 64

// DecodeSwap decodes the data section of a swap log. Standard pools emit
// five words (amount0, amount1, sqrtPriceX96, liquidity, tick); extended
// pools emit seven with two fee words appended. Both carry the fields we
// need at the same leading offsets.
func DecodeSwap(dataHex string) (*SwapEvent, error) {
	data := strings.TrimPrefix(strings.TrimSpace(dataHex), "0x")
	if len(data)%wordHexLen != 0 {
		return nil, fmt.Errorf("swap data length %d is not word aligned", len(data))
	}
	words := len(data) / wordHexLen
	if words != 5 && words != 7 {
		return nil, fmt.Errorf("unexpected swap data shape: %d words", words)
	}

	amount0, err := parseSignedWord(data[0:wordHexLen])
	if err != nil {
		return nil, fmt.Errorf("bad amount0: %w", err)
	}
	amount1, err := parseSignedWord(data[wordHexLen : 2*wordHexLen])
	if err != nil {
		return nil, fmt.Errorf("bad amount1: %w", err)
	}
	sqrtPrice, err := parseUnsignedWord(data[2*wordHexLen : 3*wordHexLen])
	if err != nil {
		return nil, fmt.Errorf("bad sqrtPriceX96: %w", err)
	}

	return &SwapEvent{
		Amount0:      amount0,
		Amount1:      amount1,
		SqrtPriceX96: sqrtPrice,
	}, nil
}

var twoTo255 = new(big.Int).Lsh(big.NewInt(1), 255)
var twoTo256 = new(big.Int).Lsh(big.NewInt(1), 256)

// parseSignedWord reads an int256 word in two's complement.
func parseSignedWord(word string) (*big.Int, error) {
	v, err := parseUnsignedWord(word)
	if err != nil {
		return nil, err
	}
	if v.Cmp(twoTo255) >= 0 {
		v.Sub(v, twoTo256)
	}
	return v, nil
}

func parseUnsignedWord(word string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(word, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex word %q", word)
	}
	return v, nil
}

var q96 = new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))

// PriceFromSqrtX96 converts a Q64.96 sqrt price into a float price of token0
// in token1, adjusted for token decimals.
func PriceFromSqrtX96(sqrtPriceX96 *big.Int, decimals0, decimals1 int) float64 {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() == 0 {
		return 0
	}
	ratio := new(big.Float).Quo(new(big.Float).SetInt(sqrtPriceX96), q96)
	price := new(big.Float).Mul(ratio, ratio)

	if shift := decimals0 - decimals1; shift != 0 {
		scale := new(big.Float).SetInt(pow10(abs(shift)))
		if shift > 0 {
			price.Mul(price, scale)
		} else {
			price.Quo(price, scale)
		}
	}

	out, _ := price.Float64()
	return out
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
