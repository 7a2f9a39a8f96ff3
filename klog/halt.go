// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package klog

// halt parks the calling CPU forever. Architecture init code may replace
// this behavior at a lower level (e.g. executing HLT in a loop instead of
// spinning) by never returning from Fatal's caller, but the package itself
// must not depend on any architecture-specific instruction to stay linkable
// on every GOARCH this module supports.
func halt() {
	for {
	}
}
