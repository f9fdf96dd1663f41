// Package elftest synthesizes minimal ELF64 images carrying only a symbol
// table, so symbol handling can be tested without checked-in binaries.
package elftest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

type Symbol struct {
	Name  string
	Value uint64
	Size  uint64
	Type  elf.SymType
}

func Func(name string, start, size uint64) Symbol {
	return Symbol{Name: name, Value: start, Size: size, Type: elf.STT_FUNC}
}

func Object(name string, start, size uint64) Symbol {
	return Symbol{Name: name, Value: start, Size: size, Type: elf.STT_OBJECT}
}

const (
	headerSize  = 64
	sectionSize = 64
	symbolSize  = 24
)

// Build lays the file out as: header, .strtab, .symtab, .shstrtab, section
// headers (null, .symtab, .strtab, .shstrtab).
func Build(syms []Symbol) []byte {
	strtab := []byte{0}
	nameOffsets := make([]uint32, len(syms))
	for i, s := range syms {
		nameOffsets[i] = uint32(len(strtab))
		strtab = append(strtab, s.Name...)
		strtab = append(strtab, 0)
	}

	var symtab bytes.Buffer
	binary.Write(&symtab, binary.LittleEndian, elf.Sym64{})
	for i, s := range syms {
		binary.Write(&symtab, binary.LittleEndian, elf.Sym64{
			Name:  nameOffsets[i],
			Info:  elf.ST_INFO(elf.STB_GLOBAL, s.Type),
			Shndx: uint16(elf.SHN_ABS),
			Value: s.Value,
			Size:  s.Size,
		})
	}

	shstrtab := []byte("\x00.symtab\x00.strtab\x00.shstrtab\x00")
	const (
		symtabName   = 1
		strtabName   = 9
		shstrtabName = 17
	)

	strtabOff := uint64(headerSize)
	symtabOff := alignUp(strtabOff+uint64(len(strtab)), 8)
	shstrtabOff := symtabOff + uint64(symtab.Len())
	shOff := alignUp(shstrtabOff+uint64(len(shstrtab)), 8)

	hdr := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_RISCV),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     shOff,
		Ehsize:    headerSize,
		Phentsize: 56,
		Shentsize: sectionSize,
		Shnum:     4,
		Shstrndx:  3,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	sections := []elf.Section64{
		{},
		{
			Name:      symtabName,
			Type:      uint32(elf.SHT_SYMTAB),
			Off:       symtabOff,
			Size:      uint64(symtab.Len()),
			Link:      2,
			Info:      1,
			Addralign: 8,
			Entsize:   symbolSize,
		},
		{
			Name:      strtabName,
			Type:      uint32(elf.SHT_STRTAB),
			Off:       strtabOff,
			Size:      uint64(len(strtab)),
			Addralign: 1,
		},
		{
			Name:      shstrtabName,
			Type:      uint32(elf.SHT_STRTAB),
			Off:       shstrtabOff,
			Size:      uint64(len(shstrtab)),
			Addralign: 1,
		},
	}

	var out bytes.Buffer
	binary.Write(&out, binary.LittleEndian, hdr)
	out.Write(strtab)
	pad(&out, symtabOff)
	out.Write(symtab.Bytes())
	out.Write(shstrtab)
	pad(&out, shOff)
	for _, s := range sections {
		binary.Write(&out, binary.LittleEndian, s)
	}
	return out.Bytes()
}

func alignUp(v, a uint64) uint64 {
	return (v + a - 1) &^ (a - 1)
}

func pad(b *bytes.Buffer, to uint64) {
	for uint64(b.Len()) < to {
		b.WriteByte(0)
	}
}
