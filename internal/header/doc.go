// Package header reads and writes the machine header macrome places at the
// top of every file it generates.
//
// A header is an ordered list of annotations followed by free-text lines.
// The first annotation of an owned header is always the ownership marker:
//
//	/* @macrome
//	 * @generated-by copy
//	 * @generated-from ./foo.js
//	 * free text
//	 */
//
//	<content>
//
// Each concrete comment syntax is an Accessor. New syntaxes are added by
// registering another Accessor on a Registry; nothing else changes.
package header
