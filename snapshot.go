package eventsourcing

import "github.com/gregbrowndev/eventsourcing/recorder"

// SnapshotPolicy decides when an aggregate is due for compaction. The
// core only exposes the mechanism; the policy is supplied by the caller.
type SnapshotPolicy interface {
	ShouldSnapshot(eventsSinceLast uint32) bool
}

// CountPolicy snapshots every Every events.
type CountPolicy struct {
	Every uint32
}

func (p CountPolicy) ShouldSnapshot(eventsSinceLast uint32) bool {
	return p.Every > 0 && eventsSinceLast >= p.Every
}

// takeSnapshot encodes the aggregate itself (its exported business state)
// through the same compress/encrypt pipeline as events, snapshotting the
// aggregate directly rather than a separate state projection. Root's
// fields are unexported and so are not in the encoded body; identity and
// version travel on the Snapshot record instead.
func takeSnapshot(mapper *Mapper, agg Aggregater) (recorder.Snapshot, error) {
	body, err := mapper.codec.Encode(agg)
	if err != nil {
		return recorder.Snapshot{}, err
	}
	body, err = mapper.compressor.Compress(body)
	if err != nil {
		return recorder.Snapshot{}, err
	}
	body, err = mapper.cipher.Encrypt(body)
	if err != nil {
		return recorder.Snapshot{}, err
	}
	return recorder.Snapshot{
		OriginatorID:      agg.GetID(),
		OriginatorVersion: agg.GetVersion(),
		Topic:             agg.EventType(),
		State:             body,
		CreatedAt:         agg.GetUpdatedAt(),
	}, nil
}

// restoreSnapshot reverses takeSnapshot, decoding directly into a blank
// aggregate obtained from the Repository's AggregateRegistry.
func restoreSnapshot(mapper *Mapper, snap recorder.Snapshot, agg Aggregater) error {
	body, err := mapper.cipher.Decrypt(snap.State)
	if err != nil {
		return err
	}
	body, err = mapper.compressor.Decompress(body)
	if err != nil {
		return err
	}
	return mapper.codec.Decode(body, agg)
}
