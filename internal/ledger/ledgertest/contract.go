// Package ledgertest simulates the contest contract behind a real JSON-RPC
// server so the ledger transport is exercised end to end in tests.
package ledgertest

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cast"

	"github.com/smartdevs17/content-rewards/internal/ledger"
	"github.com/smartdevs17/content-rewards/internal/models"
	"github.com/smartdevs17/content-rewards/internal/wallet"
)

// Address is where the simulated contract is deployed
var Address = common.HexToAddress("0x000000000000000000000000000000000000c0de")

// Reasons written by the simulated validator
const (
	ReasonAccepted = "Content accepted"
	ReasonRejected = "Content did not meet topic requirements"
	ReasonVoided   = "Contest reached maximum winners during validation"
)

// Validator decides whether content matches a contest
type Validator func(contentURL, platformPattern, requiredTopic string) bool

// PatternValidator accepts content whose URL matches the platform pattern
func PatternValidator(contentURL, platformPattern, requiredTopic string) bool {
	if platformPattern == models.PatternAny {
		return true
	}
	return strings.Contains(strings.ToLower(contentURL), strings.ToLower(platformPattern))
}

type contestState struct {
	creator           common.Address
	platformPattern   string
	requiredTopic     string
	rewardDescription string
	maxWinners        int64
	deadline          int64
	acceptedCount     int64
	isActive          bool
	submitters        []common.Address
}

type submissionState struct {
	submitter       common.Address
	contentURL      string
	status          string
	rejectionReason string
}

type transaction struct {
	hash     common.Hash
	from     common.Address
	method   string
	status   models.TxStatus
	result   interface{}
	execErr  string
	polls    int
	finalize func() (interface{}, error)
	discard  func()
}

// Contract is an in-memory contest contract
type Contract struct {
	mu            sync.Mutex
	contests      []*contestState
	submissions   map[string]*submissionState
	txs           map[common.Hash]*transaction
	order         []common.Hash
	validator     Validator
	now           func() time.Time
	hold          bool
	finalizeAfter int
	taggedMaps    bool
	stringBools   bool
	calls         map[string]int
}

// NewContract creates an empty contract that finalizes on the first receipt poll
func NewContract() *Contract {
	return &Contract{
		submissions: make(map[string]*submissionState),
		txs:         make(map[common.Hash]*transaction),
		validator:   PatternValidator,
		now:         time.Now,
		calls:       make(map[string]int),
	}
}

// SetValidator replaces the content validator
func (c *Contract) SetValidator(v Validator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.validator = v
}

// SetClock replaces the ledger clock used for deadlines
func (c *Contract) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Hold keeps every transaction pending until Finalize is called
func (c *Contract) Hold(hold bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hold = hold
}

// FinalizeAfter makes transactions report intermediate statuses for n polls
func (c *Contract) FinalizeAfter(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finalizeAfter = n
}

// EncodeTaggedMaps returns maps as {"$map": [[k, v], ...]} entry lists
func (c *Contract) EncodeTaggedMaps(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.taggedMaps = on
}

// EncodeStringBools returns booleans as "true"/"false" strings
func (c *Contract) EncodeStringBools(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stringBools = on
}

// Calls returns how many times a contract method was read or written
func (c *Contract) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// Writes returns the number of writes received
func (c *Contract) Writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Pending returns unfinalized transactions in arrival order
func (c *Contract) Pending() []common.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()

	var pending []common.Hash
	for _, hash := range c.order {
		if !c.txs[hash].status.IsTerminal() {
			pending = append(pending, hash)
		}
	}
	return pending
}

// Finalize executes the given transactions in order
func (c *Contract) Finalize(hashes ...common.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, hash := range hashes {
		tx, ok := c.txs[hash]
		if !ok {
			return fmt.Errorf("unknown transaction %s", hash.Hex())
		}
		c.finalizeLocked(tx)
	}
	return nil
}

// FinalizeAll executes every pending transaction in arrival order
func (c *Contract) FinalizeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, hash := range c.order {
		c.finalizeLocked(c.txs[hash])
	}
}

// Cancel ends a pending transaction without executing it
func (c *Contract) Cancel(hash common.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, ok := c.txs[hash]
	if !ok {
		return fmt.Errorf("unknown transaction %s", hash.Hex())
	}
	if tx.status.IsTerminal() {
		return nil
	}
	if tx.discard != nil {
		tx.discard()
	}
	tx.status = models.TxCanceled
	return nil
}

// Seed creates a contest directly, bypassing transactions
func (c *Contract) Seed(creator common.Address, params models.CreateContestParams) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createLocked(creator, params.PlatformPattern, params.RequiredTopic,
		params.RewardDescription, params.MaxWinners, params.DeadlineEpoch())
}

// SeedSubmission records a terminal submission directly
func (c *Contract) SeedSubmission(contestID uint64, submitter common.Address, contentURL string, status models.SubmissionStatus, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	contest := c.contests[contestID]
	c.submissions[submissionKey(contestID, submitter)] = &submissionState{
		submitter:       submitter,
		contentURL:      contentURL,
		status:          status.String(),
		rejectionReason: reason,
	}
	contest.submitters = append(contest.submitters, submitter)
	if status == models.StatusAccepted {
		contest.acceptedCount++
	}
}

func (c *Contract) createLocked(creator common.Address, pattern, topic, reward string, maxWinners, deadline int64) uint64 {
	id := uint64(len(c.contests))
	c.contests = append(c.contests, &contestState{
		creator:           creator,
		platformPattern:   pattern,
		requiredTopic:     topic,
		rewardDescription: reward,
		maxWinners:        maxWinners,
		deadline:          deadline,
		isActive:          true,
	})
	return id
}

func (c *Contract) contestLocked(arg interface{}) (uint64, *contestState, error) {
	id, err := cast.ToUint64E(arg)
	if err != nil || id >= uint64(len(c.contests)) {
		return 0, nil, errors.New("Contest does not exist")
	}
	return id, c.contests[id], nil
}

func submissionKey(contestID uint64, submitter common.Address) string {
	return fmt.Sprintf("%d:%s", contestID, strings.ToLower(submitter.Hex()))
}

// read dispatches a view call
func (c *Contract) read(req ledger.CallRequest) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[req.Method]++

	arg := func(i int) interface{} {
		if i < len(req.Args) {
			return req.Args[i]
		}
		return nil
	}

	switch req.Method {
	case ledger.MethodGetAllContests:
		rows := make([]interface{}, 0, len(c.contests))
		for id := range c.contests {
			rows = append(rows, c.contestRowLocked(uint64(id)))
		}
		return c.encode(rows), nil

	case ledger.MethodGetContest:
		id, _, err := c.contestLocked(arg(0))
		if err != nil {
			return nil, err
		}
		return c.encode(c.contestRowLocked(id)), nil

	case ledger.MethodGetSubmissions:
		id, contest, err := c.contestLocked(arg(0))
		if err != nil {
			return nil, err
		}
		rows := make([]interface{}, 0, len(contest.submitters))
		for _, submitter := range contest.submitters {
			sub := c.submissions[submissionKey(id, submitter)]
			rows = append(rows, map[string]interface{}{
				"submitter":        strings.ToLower(sub.submitter.Hex()),
				"content_url":      sub.contentURL,
				"status":           sub.status,
				"rejection_reason": sub.rejectionReason,
			})
		}
		return c.encode(rows), nil

	case ledger.MethodGetWinners:
		id, contest, err := c.contestLocked(arg(0))
		if err != nil {
			return nil, err
		}
		winners := make([]interface{}, 0)
		for _, submitter := range contest.submitters {
			if c.submissions[submissionKey(id, submitter)].status == models.StatusAccepted.String() {
				winners = append(winners, strings.ToLower(submitter.Hex()))
			}
		}
		return winners, nil

	case ledger.MethodGetUserSubmission:
		id, _, err := c.contestLocked(arg(0))
		if err != nil {
			return nil, err
		}
		account := cast.ToString(arg(1))
		if !common.IsHexAddress(account) {
			return c.encode(map[string]interface{}{"has_submitted": false}), nil
		}
		sub, ok := c.submissions[submissionKey(id, common.HexToAddress(account))]
		if !ok {
			return c.encode(map[string]interface{}{"has_submitted": false}), nil
		}
		return c.encode(map[string]interface{}{
			"has_submitted":    true,
			"content_url":      sub.contentURL,
			"status":           sub.status,
			"rejection_reason": sub.rejectionReason,
		}), nil
	}

	return nil, fmt.Errorf("unknown method %s", req.Method)
}

func (c *Contract) contestRowLocked(id uint64) map[string]interface{} {
	contest := c.contests[id]
	return map[string]interface{}{
		"contest_id":         id,
		"creator":            contest.creator.Hex(),
		"platform_pattern":   contest.platformPattern,
		"required_topic":     contest.requiredTopic,
		"reward_description": contest.rewardDescription,
		"max_winners":        contest.maxWinners,
		"deadline":           contest.deadline,
		"accepted_count":     contest.acceptedCount,
		"is_active":          contest.isActive,
		"spots_remaining":    contest.maxWinners - contest.acceptedCount,
	}
}

// send accepts a signed write
func (c *Contract) send(req ledger.SendRequest) (common.Hash, error) {
	payload, err := hexutil.Decode(req.Data)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid data: %v", err)
	}
	signature, err := hexutil.Decode(req.Signature)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid signature: %v", err)
	}

	signer, err := wallet.RecoverAddress(crypto.Keccak256Hash(payload), signature)
	if err != nil || !common.IsHexAddress(req.From) || signer != common.HexToAddress(req.From) {
		return common.Hash{}, errors.New("invalid signature")
	}

	var call ledger.CallPayload
	if err := json.Unmarshal(payload, &call); err != nil {
		return common.Hash{}, fmt.Errorf("invalid call payload: %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	hash := crypto.Keccak256Hash(signer.Bytes(), payload)
	if _, exists := c.txs[hash]; exists {
		return common.Hash{}, errors.New("transaction already known")
	}
	c.calls[call.Method]++

	tx := &transaction{
		hash:   hash,
		from:   signer,
		method: call.Method,
		status: models.TxPending,
	}
	c.prepareLocked(tx, call.Args)

	c.txs[hash] = tx
	c.order = append(c.order, hash)
	return hash, nil
}

// prepareLocked runs the checks made when a write is proposed and defers
// its effect to finalization
func (c *Contract) prepareLocked(tx *transaction, args []interface{}) {
	arg := func(i int) interface{} {
		if i < len(args) {
			return args[i]
		}
		return nil
	}
	fail := func(err error) {
		tx.finalize = func() (interface{}, error) { return nil, err }
	}

	switch tx.method {
	case ledger.MethodCreateContest:
		pattern := cast.ToString(arg(0))
		topic := cast.ToString(arg(1))
		reward := cast.ToString(arg(2))
		maxWinners := cast.ToInt64(arg(3))
		deadline := cast.ToInt64(arg(4))
		creator := tx.from
		tx.finalize = func() (interface{}, error) {
			return c.createLocked(creator, pattern, topic, reward, maxWinners, deadline), nil
		}

	case ledger.MethodSubmitContent:
		id, contest, err := c.contestLocked(arg(0))
		if err != nil {
			fail(err)
			return
		}
		if !contest.isActive {
			fail(errors.New("Contest is no longer active"))
			return
		}
		if contest.deadline > 0 && c.now().Unix() > contest.deadline {
			fail(errors.New("Contest deadline has passed"))
			return
		}
		if contest.acceptedCount >= contest.maxWinners {
			fail(errors.New("Contest has reached maximum winners"))
			return
		}
		key := submissionKey(id, tx.from)
		if _, exists := c.submissions[key]; exists {
			fail(errors.New("You have already submitted to this contest"))
			return
		}

		sub := &submissionState{
			submitter:  tx.from,
			contentURL: cast.ToString(arg(1)),
			status:     models.StatusPending.String(),
		}
		c.submissions[key] = sub
		contest.submitters = append(contest.submitters, tx.from)

		tx.discard = func() {
			delete(c.submissions, key)
			for i, s := range contest.submitters {
				if s == tx.from {
					contest.submitters = append(contest.submitters[:i], contest.submitters[i+1:]...)
					break
				}
			}
		}
		tx.finalize = func() (interface{}, error) {
			valid := c.validator(sub.contentURL, contest.platformPattern, contest.requiredTopic)
			switch {
			case valid && contest.acceptedCount < contest.maxWinners:
				sub.status = models.StatusAccepted.String()
				contest.acceptedCount++
				if contest.acceptedCount >= contest.maxWinners {
					contest.isActive = false
				}
			case valid:
				sub.status = models.StatusVoided.String()
				sub.rejectionReason = ReasonVoided
			default:
				sub.status = models.StatusRejected.String()
				sub.rejectionReason = ReasonRejected
			}

			reason := sub.rejectionReason
			if reason == "" {
				reason = ReasonAccepted
			}
			return map[string]interface{}{"status": sub.status, "reason": reason}, nil
		}

	case ledger.MethodCloseContest:
		_, contest, err := c.contestLocked(arg(0))
		if err != nil {
			fail(err)
			return
		}
		if tx.from != contest.creator {
			fail(errors.New("Only contest creator can close the contest"))
			return
		}
		tx.finalize = func() (interface{}, error) {
			contest.isActive = false
			return nil, nil
		}

	default:
		fail(fmt.Errorf("unknown method %s", tx.method))
	}
}

func (c *Contract) finalizeLocked(tx *transaction) {
	if tx.status.IsTerminal() {
		return
	}
	result, err := tx.finalize()
	if err != nil {
		tx.execErr = err.Error()
	} else {
		tx.result = c.encode(result)
	}
	tx.status = models.TxFinalized
}

var progression = []models.TxStatus{
	models.TxPending,
	models.TxProposing,
	models.TxCommitting,
	models.TxRevealing,
}

// receipt answers a receipt poll, finalizing when due
func (c *Contract) receipt(hash common.Hash) interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, ok := c.txs[hash]
	if !ok {
		return nil
	}

	tx.polls++
	if !c.hold && tx.polls > c.finalizeAfter {
		c.finalizeLocked(tx)
	}
	if !tx.status.IsTerminal() {
		tx.status = progression[(tx.polls-1)%len(progression)]
	}

	out := map[string]interface{}{
		"hash":   hash.Hex(),
		"status": string(tx.status),
		"result": tx.result,
	}
	if tx.execErr != "" {
		out["execution_error"] = tx.execErr
	}
	return out
}

// encode applies the configured wire quirks to a plain value
func (c *Contract) encode(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		if c.taggedMaps {
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			entries := make([]interface{}, 0, len(v))
			for _, k := range keys {
				entries = append(entries, []interface{}{k, c.encode(v[k])})
			}
			return map[string]interface{}{"$map": entries}
		}
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = c.encode(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = c.encode(item)
		}
		return out
	case bool:
		if c.stringBools {
			return fmt.Sprint(v)
		}
		return v
	}
	return value
}
