package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	// EIP712Domain(string name,string version,uint256 chainId)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)

	// Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)
	orderTypeHash = ethcrypto.Keccak256(
		[]byte("Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)"),
	)

	// ClobAuth(address address,string timestamp,uint256 nonce,string message)
	clobAuthTypeHash = ethcrypto.Keccak256(
		[]byte("ClobAuth(address address,string timestamp,uint256 nonce,string message)"),
	)
)

const clobAuthMessage = "This message attests that I control the given wallet"

// OrderPayload is the EIP-712 struct signed for CLOB-style venues. Addresses
// and uint256 fields travel as strings to survive JSON boundaries intact.
type OrderPayload struct {
	Salt          string `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          int    `json:"side"`          // 0 = BUY, 1 = SELL
	SignatureType int    `json:"signatureType"` // 0 = EOA
}

// Signer signs order payloads with a secp256k1 key per EIP-712.
type Signer struct {
	privateKey    *ecdsa.PrivateKey
	address       common.Address
	domainSep     []byte
	authDomainSep []byte
}

// NewSigner creates a Signer from a hex-encoded private key and the venue's
// chain ID (137 for Polygon mainnet).
func NewSigner(privateKeyHex string, chainID int) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}

	s := &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}
	s.domainSep = ethcrypto.Keccak256(concat(
		eip712DomainTypeHash,
		ethcrypto.Keccak256([]byte("Polymarket CTF Exchange")),
		ethcrypto.Keccak256([]byte("1")),
		uint256Bytes(big.NewInt(int64(chainID))),
	))
	s.authDomainSep = ethcrypto.Keccak256(concat(
		eip712DomainTypeHash,
		ethcrypto.Keccak256([]byte("ClobAuthDomain")),
		ethcrypto.Keccak256([]byte("1")),
		uint256Bytes(big.NewInt(int64(chainID))),
	))
	return s, nil
}

// Address returns the wallet address derived from the signing key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignOrder hashes and signs an order payload, returning the hex-encoded
// 65-byte (r || s || v) signature.
func (s *Signer) SignOrder(order OrderPayload) (string, error) {
	structHash, err := orderStructHash(order)
	if err != nil {
		return "", err
	}

	digest := ethcrypto.Keccak256(concat([]byte{0x19, 0x01}, s.domainSep, structHash))

	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto: signing order: %w", err)
	}
	// go-ethereum yields v in {0,1}; the exchange expects {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// SignAuthMessage signs the ClobAuth attestation used by the API-key
// derivation flow. The timestamp is hashed as its decimal string form.
func (s *Signer) SignAuthMessage(address string, timestamp, nonce int64) (string, error) {
	structHash := ethcrypto.Keccak256(concat(
		clobAuthTypeHash,
		common.LeftPadBytes(common.HexToAddress(address).Bytes(), 32),
		ethcrypto.Keccak256([]byte(strconv.FormatInt(timestamp, 10))),
		uint256Bytes(big.NewInt(nonce)),
		ethcrypto.Keccak256([]byte(clobAuthMessage)),
	))

	digest := ethcrypto.Keccak256(concat([]byte{0x19, 0x01}, s.authDomainSep, structHash))

	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto: signing auth message: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

func orderStructHash(o OrderPayload) ([]byte, error) {
	uints := make(map[string]*big.Int, 7)
	for name, raw := range map[string]string{
		"salt":        o.Salt,
		"tokenId":     o.TokenID,
		"makerAmount": o.MakerAmount,
		"takerAmount": o.TakerAmount,
		"expiration":  o.Expiration,
		"nonce":       o.Nonce,
		"feeRateBps":  o.FeeRateBps,
	} {
		n, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return nil, fmt.Errorf("crypto: invalid %s %q", name, raw)
		}
		uints[name] = n
	}

	return ethcrypto.Keccak256(concat(
		orderTypeHash,
		uint256Bytes(uints["salt"]),
		common.LeftPadBytes(common.HexToAddress(o.Maker).Bytes(), 32),
		common.LeftPadBytes(common.HexToAddress(o.Signer).Bytes(), 32),
		common.LeftPadBytes(common.HexToAddress(o.Taker).Bytes(), 32),
		uint256Bytes(uints["tokenId"]),
		uint256Bytes(uints["makerAmount"]),
		uint256Bytes(uints["takerAmount"]),
		uint256Bytes(uints["expiration"]),
		uint256Bytes(uints["nonce"]),
		uint256Bytes(uints["feeRateBps"]),
		uint256Bytes(big.NewInt(int64(o.Side))),
		uint256Bytes(big.NewInt(int64(o.SignatureType))),
	)), nil
}

func uint256Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

func concat(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
