/*
Package recstore implements typed record collections on top of a single-file,
transactional, ordered key-value store (in this case, on top of Bolt).

We implement:

1. Collections, ordered maps from a positive int64 identifier to a record
marshaled from the given struct.

2. Sequences, named persistent counters that mint collection identifiers.

3. A commit scheduler and a shutdown sequence that decide when buffered
mutations become durable.

# Transactions

The store keeps one long-lived writable Bolt transaction open. Every mutation
goes into it and is immediately visible to later reads in the same process,
but it only becomes durable when Commit runs (explicitly, from the commit
scheduler, or during shutdown). Close discards whatever was not committed.
Access to the open transaction is serialized by a single mutex, so a
read-modify-write on one identifier is indivisible with respect to every
other writer.

A crash loses everything since the last commit. Because a sequence increment
and the insert that consumed it share the buffered transaction, they are lost
or kept together; on open, every sequence is also raised to the largest
identifier stored in its collection, so an identifier is never issued twice.

Opening MemoryPath gives a store with the same semantics that lives only in
process memory; everything is gone after Close.

# Technical Details

**Buckets.**
Each collection owns one root bucket named after it. Sequences live in the
“_sequences” bucket, keyed by sequence name.

## Binary encoding

**Key encoding**.
Keys are 8-byte big-endian identifiers, so Bolt's byte order is identifier
order.

**Value**: value header, then encoded data, then checksum.

**Value header**:
1. Flags (uvarint).
2. Schema version (uvarint).
3. Modification count (uvarint).
4. Data size (uvarint).

**Value data**: msgpack of the record struct (JSON can be selected per
collection). The identifier is not part of the data; it comes from the key.

**Checksum**: xxhash64 of the data, 8 bytes little-endian. A value whose
checksum does not match is reported as a *DataError and never decoded.

**Sequence value**: 8-byte big-endian counter.
*/
package recstore
