// Package tiling packs decoded video frames into composite tile images.
//
// Plan computes the grid geometry: the column count, the total number of
// frame rows, and how those rows are spread across tiles so each tile gets
// floor or ceil of the average and the rows sum exactly. Packer seals the
// tiles under one of three policies (parallel, memory-saving, boost) and
// hands each sealed Tile to a sink as it completes. The policy only changes
// scheduling and memory use; the packing math and the encoded bytes are the
// same for every policy.
package tiling
