package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"perp-gateway/pkg/signer"
)

// DefaultLoginWindow is the accepted distance between the signed timestamp and now.
const DefaultLoginWindow = 5 * time.Minute

// LoginMessage is the text a wallet signs (EIP-191 personal_sign) to obtain a token.
func LoginMessage(wallet string, ts int64) string {
	return fmt.Sprintf("perp-gateway login\nwallet: %s\ntimestamp: %d", common.HexToAddress(wallet).Hex(), ts)
}

// VerifyLogin checks that sigHex is wallet's signature of LoginMessage(wallet, ts)
// and that ts (unix seconds) is within the login window.
func (s *Service) VerifyLogin(wallet string, ts int64, sigHex string) error {
	if !common.IsHexAddress(wallet) {
		return fmt.Errorf("%w: invalid wallet address", ErrAuthInvalid)
	}
	skew := s.now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > s.loginWindow {
		return fmt.Errorf("%w: timestamp outside login window", ErrAuthInvalid)
	}

	sig, err := hexutil.Decode(strings.TrimSpace(sigHex))
	if err != nil {
		return fmt.Errorf("%w: malformed signature", ErrAuthInvalid)
	}
	recovered, err := signer.RecoverPersonal([]byte(LoginMessage(wallet, ts)), sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthInvalid, err)
	}
	if recovered != common.HexToAddress(wallet) {
		return fmt.Errorf("%w: signature does not match wallet", ErrAuthInvalid)
	}
	return nil
}
