package chainkv

// GeneratedTXO is one "output created" delta emitted by the batch
// builder (spec.md §4.4).
type GeneratedTXO struct {
	Txid             [32]byte
	Vout             uint32
	LockerScriptHash [20]byte
	Value            uint64
	GeneratedHeight  uint32
}

// SpentTXO is one "output spent" delta emitted by the batch builder.
type SpentTXO struct {
	Txid        [32]byte
	Vout        uint32
	SpentHeight uint32
}

// Batch is the in-memory delta produced by the batch builder for a
// contiguous run of blocks (spec.md §4.4). It is consumed exactly once
// by Layer.Apply.
type Batch struct {
	StartHeight uint32
	EndHeight   uint32
	BlockHashes [][32]byte

	Generated []GeneratedTXO
	Spent     []SpentTXO
}
