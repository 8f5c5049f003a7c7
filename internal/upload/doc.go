// Package upload delivers finished artifacts to the messaging platform.
//
// The Executor checks the file against the platform limit before any transfer,
// then calls the Sender collaborator under the shared retry policy. Rate-limit
// replies carrying a retry-after hint wait for the hint instead of the
// exponential delay.
package upload
