// Package shared holds cross-cutting utilities that do not belong to any
// single domain package.
//
// The testutil subpackage provides RSA signing-key and license-token
// fixtures shared by the license server and command tests.
package shared
