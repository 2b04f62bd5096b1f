// Package hashid issues random, collision-free identifiers drawn from the
// lowercase alphanumeric alphabet.
//
// Identifiers name archive assets (32 characters) and project sub-objects
// such as sprites, pictures, and script blocks (4 characters). Each
// Allocator remembers every value it has issued and never returns one twice;
// the package-level helpers share a process-wide allocator.
package hashid
