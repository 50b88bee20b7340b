package signer

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Domain is the EIP-712 domain separator input.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// AgentDomain is the domain venue L1 actions are signed under.
func AgentDomain() Domain {
	return Domain{
		Name:    "Exchange",
		Version: "1",
		ChainID: big.NewInt(1337),
	}
}

// Signature is the split form the venue expects in request bodies.
type Signature struct {
	R string `json:"r"`
	S string `json:"s"`
	V byte   `json:"v"`
}

// ActionHash commits to an action, its nonce and the optional vault address.
// The action is canonicalised as compact JSON.
func ActionHash(action any, nonce uint64, vault *common.Address) ([]byte, error) {
	payload, err := json.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("encode action: %w", err)
	}

	buf := make([]byte, 0, len(payload)+8+1+common.AddressLength)
	buf = append(buf, payload...)
	buf = binary.BigEndian.AppendUint64(buf, nonce)
	if vault == nil {
		buf = append(buf, 0x00)
	} else {
		buf = append(buf, 0x01)
		buf = append(buf, vault.Bytes()...)
	}
	return crypto.Keccak256(buf), nil
}

func agentTypedData(domain Domain, source string, connectionID []byte) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Agent": []apitypes.Type{
				{Name: "source", Type: "string"},
				{Name: "connectionId", Type: "bytes32"},
			},
		},
		PrimaryType: "Agent",
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(domain.ChainID),
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"source":       source,
			"connectionId": hexutil.Encode(connectionID),
		},
	}
}

// HashAgent returns the EIP-712 digest for an Agent{source, connectionId} message.
func HashAgent(domain Domain, source string, connectionID []byte) ([]byte, error) {
	if len(connectionID) != 32 {
		return nil, fmt.Errorf("connection id must be 32 bytes, got %d", len(connectionID))
	}
	digest, _, err := apitypes.TypedDataAndHash(agentTypedData(domain, source, connectionID))
	if err != nil {
		return nil, fmt.Errorf("hash typed data: %w", err)
	}
	return digest, nil
}

// SignAction signs action under domain. source is "a" on mainnet and "b" on testnet.
func (s *Signer) SignAction(domain Domain, source string, action any, nonce uint64, vault *common.Address) (Signature, error) {
	connectionID, err := ActionHash(action, nonce, vault)
	if err != nil {
		return Signature{}, err
	}
	digest, err := HashAgent(domain, source, connectionID)
	if err != nil {
		return Signature{}, err
	}
	sig, err := s.Sign(digest)
	if err != nil {
		return Signature{}, err
	}
	return Signature{
		R: hexutil.Encode(sig[:32]),
		S: hexutil.Encode(sig[32:64]),
		V: sig[64],
	}, nil
}

// Bytes joins the split form back into 65 bytes.
func (sig Signature) Bytes() ([]byte, error) {
	r, err := hexutil.Decode(sig.R)
	if err != nil {
		return nil, fmt.Errorf("%w: r: %v", ErrInvalidSig, err)
	}
	sv, err := hexutil.Decode(sig.S)
	if err != nil {
		return nil, fmt.Errorf("%w: s: %v", ErrInvalidSig, err)
	}
	if len(r) != 32 || len(sv) != 32 {
		return nil, fmt.Errorf("%w: r/s length", ErrInvalidSig)
	}
	out := make([]byte, 0, 65)
	out = append(out, r...)
	out = append(out, sv...)
	return append(out, sig.V), nil
}
