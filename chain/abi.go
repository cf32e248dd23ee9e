package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/goliatone/go-escrow-pipeline/core"
)

// escrowABI covers the escrow contract methods the pipeline calls.
const escrowABI = `[
  {"type":"function","name":"status","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"launcher","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"exchangeOracle","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"recordingOracle","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"manifestUrl","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"intermediateResultsUrl","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"complete","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"type":"function","name":"bulkPayOut","stateMutability":"nonpayable","inputs":[
    {"name":"_recipients","type":"address[]"},
    {"name":"_amounts","type":"uint256[]"},
    {"name":"_url","type":"string"},
    {"name":"_hash","type":"string"},
    {"name":"_txId","type":"uint256"}
  ],"outputs":[]}
]`

const (
	methodStatus                 = "status"
	methodLauncher               = "launcher"
	methodExchangeOracle         = "exchangeOracle"
	methodRecordingOracle        = "recordingOracle"
	methodManifestURL            = "manifestUrl"
	methodIntermediateResultsURL = "intermediateResultsUrl"
	methodComplete               = "complete"
	methodBulkPayOut             = "bulkPayOut"
)

// On-chain enum order of EscrowStatuses.
var escrowStatuses = []core.EscrowStatus{
	core.EscrowStatusLaunched,
	core.EscrowStatusPending,
	core.EscrowStatusPartial,
	core.EscrowStatusPaid,
	core.EscrowStatusComplete,
	core.EscrowStatusCancelled,
}

func parseEscrowABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(escrowABI))
}

func statusFromOrdinal(ordinal uint8) (core.EscrowStatus, bool) {
	if int(ordinal) >= len(escrowStatuses) {
		return "", false
	}
	return escrowStatuses[ordinal], true
}
