package cpu

// these errors are reported by MemError
const (
	MEM_READ_UNMAPPED  = 19
	MEM_WRITE_UNMAPPED = 20
	MEM_READ_PROT      = 13
	MEM_WRITE_PROT     = 12
)

// these constants are used for memory protections
const (
	PROT_NONE  = 0
	PROT_READ  = 1
	PROT_WRITE = 2
	PROT_EXEC  = 4
	PROT_ALL   = 7
)

// ProtString renders prot as "rwx" with '-' for missing bits.
func ProtString(prot int) string {
	prots := []int{PROT_READ, PROT_WRITE, PROT_EXEC}
	chars := []byte("rwx")
	out := []byte("---")
	for i := range prots {
		if prot&prots[i] != 0 {
			out[i] = chars[i]
		}
	}
	return string(out)
}
