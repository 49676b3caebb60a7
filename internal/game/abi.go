package game

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const gameABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "player", "type": "address"},
      {"indexed": false, "internalType": "bool", "name": "won", "type": "bool"},
      {"indexed": false, "internalType": "uint8", "name": "cashoutStep", "type": "uint8"},
      {"indexed": false, "internalType": "uint256", "name": "amountReceived", "type": "uint256"},
      {"indexed": false, "internalType": "int256", "name": "playerNetWin", "type": "int256"}
    ],
    "name": "RoundSettled",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "player", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "referrer", "type": "address"},
      {"indexed": false, "internalType": "bytes32", "name": "code", "type": "bytes32"}
    ],
    "name": "ReferralBound",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "epoch", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "referrer", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "ReferralRewardClaimed",
    "type": "event"
  }
]`

var (
	gameABI     abi.ABI
	gameABIOnce sync.Once
	gameABIErr  error
)

// GameABI returns the parsed game event ABI.
func GameABI() (abi.ABI, error) {
	gameABIOnce.Do(func() {
		gameABI, gameABIErr = abi.JSON(strings.NewReader(gameABIJSON))
	})
	return gameABI, gameABIErr
}
