package ext2

import (
	"bytes"
	"encoding/binary"
	"slices"

	"github.com/example/ext2fs/pkg/disk"
	"github.com/example/ext2fs/pkg/fs"
)

// blockWalk is everything an inode owns: its data blocks in file order and the
// pointer blocks that were read to find them.
type blockWalk struct {
	data     []uint32
	pointers []uint32
}

// live reports whether id can be followed as a pointer block. A zero id, an id
// out of range or one whose bitmap bit is clear ends the list.
func (v *Volume) live(id uint32) bool {
	if id == 0 || id > v.sb.totalBlocks {
		return false
	}
	return v.sb.blocks.get(id)
}

func (v *Volume) readPointers(id uint32) ([]uint32, error) {
	raw := make([]byte, v.sb.blockSize)
	if err := disk.ReadBlocks(v.dev, v.sb, []uint32{id}, raw); err != nil {
		return nil, err
	}
	ptrs := make([]uint32, v.sb.PointersPerBlock())
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, ptrs); err != nil {
		return nil, fs.NewError("readPointers", v.dev.Name(), err)
	}
	return ptrs, nil
}

func (v *Volume) writePointers(id uint32, ptrs []uint32) error {
	var buf bytes.Buffer
	buf.Grow(int(v.sb.blockSize))
	if err := binary.Write(&buf, binary.LittleEndian, ptrs); err != nil {
		return fs.NewError("writePointers", v.dev.Name(), err)
	}
	return disk.WriteBlocks(v.dev, v.sb, []uint32{id}, buf.Bytes())
}

func (v *Volume) walk(ino *Inode) (blockWalk, error) {
	var w blockWalk
	for _, id := range ino.Blocks[:IndirectSlot] {
		if id == 0 {
			return w, nil
		}
		w.data = append(w.data, id)
	}

	full, err := v.expand(ino.Blocks[IndirectSlot], &w)
	if err != nil || !full {
		return w, err
	}

	dbl := ino.Blocks[DoubleIndirectSlot]
	if !v.live(dbl) {
		return w, nil
	}
	table, err := v.readPointers(dbl)
	if err != nil {
		return blockWalk{}, err
	}
	w.pointers = append(w.pointers, dbl)
	for _, ind := range table {
		full, err := v.expand(ind, &w)
		if err != nil {
			return blockWalk{}, err
		}
		if !full {
			break
		}
	}
	return w, nil
}

// expand appends the live entries of indirect block id to w and reports
// whether every entry was live.
func (v *Volume) expand(id uint32, w *blockWalk) (bool, error) {
	if !v.live(id) {
		return false, nil
	}
	ptrs, err := v.readPointers(id)
	if err != nil {
		return false, err
	}
	w.pointers = append(w.pointers, id)
	for _, p := range ptrs {
		if !v.live(p) {
			return false, nil
		}
		w.data = append(w.data, p)
	}
	return true, nil
}

// ResolveBlockIDs returns the data blocks of ino in file order.
func (v *Volume) ResolveBlockIDs(ino *Inode) ([]uint32, error) {
	w, err := v.walk(ino)
	if err != nil {
		return nil, err
	}
	return w.data, nil
}

// MaxFileBlocks is the number of data blocks one inode can address.
func (v *Volume) MaxFileBlocks() int {
	ppb := v.sb.PointersPerBlock()
	return IndirectSlot + ppb + ppb*ppb
}

// AssignBlockIDs appends ids to the block list of ino, allocating indirect and
// double-indirect pointer blocks as needed. The bitmap bits of ids and of any
// new pointer block are set only once every pointer block has been written.
// On failure neither the superblock nor ino is changed.
func (v *Volume) AssignBlockIDs(ino *Inode, ids []uint32) error {
	if len(ids) == 0 {
		return nil
	}
	cur, err := v.walk(ino)
	if err != nil {
		return err
	}
	tx := newAllocTx(v, cur.pointers)
	for _, id := range ids {
		if err := tx.claim(id); err != nil {
			return err
		}
	}

	all := append(slices.Clone(cur.data), ids...)
	if len(all) > v.MaxFileBlocks() {
		return fs.Errorf("AssignBlockIDs", fs.ErrFileTooLarge, "%d blocks, at most %d addressable", len(all), v.MaxFileBlocks())
	}

	ppb := v.sb.PointersPerBlock()
	next := *ino
	for i := range IndirectSlot {
		next.Blocks[i] = 0
		if i < len(all) {
			next.Blocks[i] = all[i]
		}
	}
	rest := all[min(len(all), IndirectSlot):]

	if next.Blocks[IndirectSlot], err = tx.fillIndirect(ino.Blocks[IndirectSlot], rest[:min(len(rest), ppb)]); err != nil {
		return err
	}
	if next.Blocks[DoubleIndirectSlot], err = tx.fillDouble(ino.Blocks[DoubleIndirectSlot], rest[min(len(rest), ppb):]); err != nil {
		return err
	}
	if err := tx.commit(); err != nil {
		return err
	}

	v.log.WithField("blocks", ids).WithField("pointers", tx.fresh).Debug("assigned blocks")
	*ino = next
	return nil
}

// ReleaseAllBlockIDs frees every data and pointer block owned by ino and
// clears its pointer slots. The file size is left to the caller.
func (v *Volume) ReleaseAllBlockIDs(ino *Inode) error {
	w, err := v.walk(ino)
	if err != nil {
		return err
	}
	owned := append(w.data, w.pointers...)
	for _, id := range owned {
		if err := v.sb.checkBlock(id); err != nil {
			return err
		}
	}
	for _, id := range owned {
		if err := v.sb.SetBlockUse(id, false); err != nil {
			return err
		}
	}
	ino.Blocks = [InodeBlockCount]uint32{}
	if len(owned) > 0 {
		v.log.WithField("blocks", len(owned)).Debug("released blocks")
	}
	return nil
}

// allocTx buffers the effects of one AssignBlockIDs call. Pointer block
// contents are staged in memory and bitmap bits are held as pending until
// commit.
type allocTx struct {
	v       *Volume
	owned   map[uint32]bool
	pending map[uint32]bool
	claimed []uint32
	fresh   []uint32
	staged  map[uint32][]uint32
	order   []uint32
}

func newAllocTx(v *Volume, pointers []uint32) *allocTx {
	tx := &allocTx{
		v:       v,
		owned:   make(map[uint32]bool, len(pointers)),
		pending: make(map[uint32]bool),
		staged:  make(map[uint32][]uint32),
	}
	for _, id := range pointers {
		tx.owned[id] = true
	}
	return tx
}

// claim reserves a data block supplied by the caller.
func (tx *allocTx) claim(id uint32) error {
	used, err := tx.v.sb.BlockUsed(id)
	if err != nil {
		return err
	}
	if used || tx.pending[id] {
		return fs.Errorf("AssignBlockIDs", fs.ErrInvalidID, "block %d already in use", id)
	}
	tx.pending[id] = true
	tx.claimed = append(tx.claimed, id)
	return nil
}

// pointerBlock returns slot when it is a pointer block the inode already owns,
// and otherwise the lowest free block that is not pending.
func (tx *allocTx) pointerBlock(slot uint32) (uint32, error) {
	if tx.owned[slot] {
		return slot, nil
	}
	ids, err := tx.v.sb.findUnusedBlocks(1, func(id uint32) bool { return tx.pending[id] })
	if err != nil {
		return 0, err
	}
	id := ids[0]
	tx.pending[id] = true
	tx.fresh = append(tx.fresh, id)
	return id, nil
}

func (tx *allocTx) stage(id uint32, ptrs []uint32) {
	if _, ok := tx.staged[id]; !ok {
		tx.order = append(tx.order, id)
	}
	tx.staged[id] = ptrs
}

// fillIndirect lays entries out in the indirect block at slot. An owned block
// with no entries left is kept, zeroed, so it is still released with the file.
func (tx *allocTx) fillIndirect(slot uint32, entries []uint32) (uint32, error) {
	if len(entries) == 0 && !tx.owned[slot] {
		return 0, nil
	}
	id, err := tx.pointerBlock(slot)
	if err != nil {
		return 0, err
	}
	ptrs := make([]uint32, tx.v.sb.PointersPerBlock())
	copy(ptrs, entries)
	tx.stage(id, ptrs)
	return id, nil
}

func (tx *allocTx) fillDouble(slot uint32, entries []uint32) (uint32, error) {
	if len(entries) == 0 && !tx.owned[slot] {
		return 0, nil
	}
	ppb := tx.v.sb.PointersPerBlock()
	var table []uint32
	if tx.owned[slot] {
		var err error
		if table, err = tx.v.readPointers(slot); err != nil {
			return 0, err
		}
	}
	id, err := tx.pointerBlock(slot)
	if err != nil {
		return 0, err
	}

	ptrs := make([]uint32, ppb)
	for j := range ppb {
		var old uint32
		if table != nil {
			old = table[j]
		}
		start := min(j*ppb, len(entries))
		chunk := entries[start:min(start+ppb, len(entries))]
		if ptrs[j], err = tx.fillIndirect(old, chunk); err != nil {
			return 0, err
		}
	}
	tx.stage(id, ptrs)
	return id, nil
}

func (tx *allocTx) commit() error {
	for _, id := range tx.order {
		if err := tx.v.writePointers(id, tx.staged[id]); err != nil {
			return err
		}
	}
	for _, id := range append(tx.claimed, tx.fresh...) {
		if err := tx.v.sb.SetBlockUse(id, true); err != nil {
			return err
		}
	}
	return nil
}
