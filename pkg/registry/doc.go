/*
Package registry provides the versioned document store for Cadre.

The registry is the single authority on document mutation. Content is
opaque bytes with a SHA-256 hash; every mutation that changes content
creates a new immutable version linked to its parent, forming a version
chain per root document. Access control is a per-document ACL of reader
and writer sets where WRITE implies READ and the owner's access is
irrevocable.

Lookups are served from in-memory indices by type, workflow and team;
the snapshot store is write-behind and never consulted on the read path.

Exports serialize a document to JSON, YAML or Markdown (YAML front-matter
plus content); imports accept JSON and YAML and verify the content hash.
Large documents can be split into section-aligned shards that reassemble
byte-exactly.
*/
package registry
