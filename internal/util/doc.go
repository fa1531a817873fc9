// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small file helpers shared by the key store and config.
//
//	err := util.AtomicWriteFile(path, data, util.PrivateFilePerm, util.PrivateDirPerm)
package util
