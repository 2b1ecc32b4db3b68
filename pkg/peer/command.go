package peer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuemby/tempo-operator/pkg/types"
)

// Command is one leader write to shared peer storage. The same commands
// are applied by MemoryStore directly and by the raft FSM from the log.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
	At   time.Time       `json:"at"`
}

const (
	opSetLeader          = "set_leader"
	opPublishConfig      = "publish_config"
	opRecordApplied      = "record_applied"
	opPublishCertificate = "publish_certificate"
	opPublishKeys        = "publish_keys"
	opPublishUnits       = "publish_units"
)

type configRecord struct {
	Version uint64 `json:"version"`
	Hash    string `json:"hash"`
}

func newCommand(op string, v any) (Command, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Command{}, fmt.Errorf("failed to marshal %s: %w", op, err)
	}
	return Command{Op: op, Data: data, At: time.Now().UTC()}, nil
}

// applyCommand mutates snap according to cmd
func applyCommand(snap *types.PeerSnapshot, cmd Command) error {
	switch cmd.Op {
	case opSetLeader:
		var id string
		if err := json.Unmarshal(cmd.Data, &id); err != nil {
			return err
		}
		snap.Leader = id

	case opPublishConfig:
		var rec configRecord
		if err := json.Unmarshal(cmd.Data, &rec); err != nil {
			return err
		}
		if rec.Version < snap.ConfigVersion {
			return fmt.Errorf("config version %d older than published %d", rec.Version, snap.ConfigVersion)
		}
		snap.ConfigVersion = rec.Version
		snap.ConfigHash = rec.Hash

	case opRecordApplied:
		var applied types.AppliedState
		if err := json.Unmarshal(cmd.Data, &applied); err != nil {
			return err
		}
		snap.Applied = applied

	case opPublishCertificate:
		var cert *types.CertificatePayload
		if err := json.Unmarshal(cmd.Data, &cert); err != nil {
			return err
		}
		snap.Certificate = cert

	case opPublishKeys:
		var keys map[string]string
		if err := json.Unmarshal(cmd.Data, &keys); err != nil {
			return err
		}
		if snap.Keys == nil {
			snap.Keys = make(map[string]string, len(keys))
		}
		for name, key := range keys {
			snap.Keys[name] = key
		}

	case opPublishUnits:
		var units []types.PeerUnit
		if err := json.Unmarshal(cmd.Data, &units); err != nil {
			return err
		}
		snap.Units = units

	default:
		return fmt.Errorf("unknown command: %s", cmd.Op)
	}

	snap.UpdatedAt = cmd.At
	return nil
}
