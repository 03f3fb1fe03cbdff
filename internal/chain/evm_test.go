package chain

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey          = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testSourceAddr   = "0x1111111111111111111111111111111111111111"
	testDestAddr     = "0x2222222222222222222222222222222222222222"
	testUserAddr     = "0x3333333333333333333333333333333333333333"
)

func testLedger(t *testing.T) *EVMLedger {
	t.Helper()

	ledger, err := NewEVMLedger(nil, nil, &EVMLedgerConfig{
		SourceContract:      testSourceAddr,
		DestinationContract: testDestAddr,
		PrivateKey:          testKey,
		DestinationChainID:  31,
		GasLimit:            200000,
		GasPriceGwei:        50,
		Simulate:            true,
	})
	require.NoError(t, err)
	return ledger
}

func depositLog(block uint64, logIndex uint, user common.Address, amount *big.Int) types.Log {
	return types.Log{
		Address:     common.HexToAddress(testSourceAddr),
		Topics:      []common.Hash{{}, common.BytesToHash(user.Bytes())},
		Data:        common.LeftPadBytes(amount.Bytes(), 32),
		BlockNumber: block,
		BlockHash:   common.HexToHash("0xbbbb"),
		TxHash:      common.HexToHash("0xaaaa"),
		Index:       logIndex,
	}
}

func TestNewEVMLedgerRejectsBadInput(t *testing.T) {
	base := EVMLedgerConfig{
		SourceContract:      testSourceAddr,
		DestinationContract: testDestAddr,
		PrivateKey:          testKey,
	}

	bad := base
	bad.SourceContract = "not-an-address"
	_, err := NewEVMLedger(nil, nil, &bad)
	assert.Error(t, err)

	bad = base
	bad.PrivateKey = "zz"
	_, err = NewEVMLedger(nil, nil, &bad)
	assert.Error(t, err)
}

func TestParseDepositLog(t *testing.T) {
	ledger := testLedger(t)

	user := common.HexToAddress(testUserAddr)
	amount := big.NewInt(1500000000000000000)

	event, err := ledger.parseDepositLog(depositLog(60, 3, user, amount))
	require.NoError(t, err)

	assert.Equal(t, user, event.User)
	assert.Equal(t, 0, event.Amount.Cmp(amount))
	assert.Equal(t, uint64(60), event.BlockNumber)
	assert.Equal(t, uint(3), event.LogIndex)
	assert.NotEmpty(t, event.ID)
}

func TestParseDepositLogMissingUserTopic(t *testing.T) {
	ledger := testLedger(t)

	log := depositLog(60, 0, common.HexToAddress(testUserAddr), big.NewInt(1))
	log.Topics = log.Topics[:1]

	_, err := ledger.parseDepositLog(log)
	assert.Error(t, err)
}

func TestEventIDIsStablePerLog(t *testing.T) {
	ledger := testLedger(t)
	user := common.HexToAddress(testUserAddr)

	first, err := ledger.parseDepositLog(depositLog(60, 3, user, big.NewInt(1)))
	require.NoError(t, err)

	// The same log observed again yields the same identity
	again, err := ledger.parseDepositLog(depositLog(60, 3, user, big.NewInt(1)))
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	// A different log index in the same transaction is a distinct event
	sibling, err := ledger.parseDepositLog(depositLog(60, 4, user, big.NewInt(1)))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, sibling.ID)
}

func TestDepositTopicMatchesEventSignature(t *testing.T) {
	ledger := testLedger(t)

	parsed, err := abi.JSON(strings.NewReader(SourceBridgeABI))
	require.NoError(t, err)
	assert.Equal(t, parsed.Events[DepositEventName].ID, ledger.depositTopic)
}

func TestClaimCalldataRoundTrip(t *testing.T) {
	ledger := testLedger(t)

	user := common.HexToAddress(testUserAddr)
	amount := big.NewInt(5000)
	sourceTx := common.HexToHash("0xaaaa")

	calldata, err := ledger.destABI.Pack(ClaimMethodName, user, amount, sourceTx)
	require.NoError(t, err)

	method, err := ledger.destABI.MethodById(calldata[:4])
	require.NoError(t, err)
	assert.Equal(t, ClaimMethodName, method.Name)

	unpacked, err := method.Inputs.Unpack(calldata[4:])
	require.NoError(t, err)
	require.Len(t, unpacked, 3)
	assert.Equal(t, user, unpacked[0].(common.Address))
	assert.Equal(t, 0, amount.Cmp(unpacked[1].(*big.Int)))
	assert.Equal(t, sourceTx, common.Hash(unpacked[2].([32]byte)))
}

func TestSenderDerivedFromKey(t *testing.T) {
	ledger := testLedger(t)
	assert.Equal(t, "0x96216849c49358B10257cb55b28eA603c874b05E", ledger.Sender().Hex())
}
