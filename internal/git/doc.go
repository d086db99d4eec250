// Package git checks out document specifications hosted in git repositories.
//
// A repository is cloned into a workspace directory on first use and
// fast-forwarded on later runs. The specification itself may live in a
// subdirectory of the repository; Checkout returns that directory so the
// rest of the pipeline never needs to know the specification came from git.
package git
