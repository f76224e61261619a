package exchange

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/pkg/errors"
)

// NetworkParams maps a configured network name onto chain parameters.
func NetworkParams(name string) (*chaincfg.Params, error) {
	switch name {
	case "mainnet", "":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	default:
		return nil, errors.Errorf("unknown bitcoin network %q", name)
	}
}

// ValidateAddress accepts only addresses that decode for params.
func ValidateAddress(address string, params *chaincfg.Params) error {
	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return errors.Wrap(ErrInvalidAddress, err.Error())
	}
	if !addr.IsForNet(params) {
		return errors.Wrapf(ErrInvalidAddress, "address is not for %s", params.Name)
	}
	return nil
}
