// Package layer implements the onion layers of a circuit.
//
// Each hop shares four keys with the client: a forward and a backward
// ChaCha20 stream key and a forward and a backward key-seeded BLAKE2b running
// digest. The client seals a cell for hop N by stamping it with hop N's
// running digest and then encrypting it with the layers of hops N..0; each
// relay removes its layer and checks whether the cell is recognized. The
// 20-byte digest snapshot taken when a cell is sealed or recognized doubles
// as its authenticated SENDME tag.
//
// ClientLayers is the client side. RelayHop is the relay side of one hop and
// Path chains RelayHops into a simulated remote path.
package layer
