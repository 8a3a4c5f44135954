/*
Package syntax provides string types for the identifier formats used in
repository paths and commits: DID, NSID, record key, and TID.

Each type is a simple string wrapper which has been validated. Always
construct them with the corresponding Parse function instead of casting
untrusted strings directly; code receiving one of these types may assume the
syntax rules hold.

These types do not indicate that an identifier actually exists or resolves,
only that the string is well-formed.
*/
package syntax
