// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing turns and events and when asserting on
// emitted event sequences. They are not intended for production usage.
package testutil
