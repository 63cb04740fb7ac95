// Package compiler implements the Flow document compiler: a tokenizer, a
// parser producing a FlowFile, a resolver that merges imports and validates
// every reference, and a renderer that flattens the entry node to text
// through a chain of style handlers.
//
// Pipeline: Flow source → Tokenize → Parse → Resolve → Compile → text
package compiler
