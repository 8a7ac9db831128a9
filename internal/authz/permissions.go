// Copyright 2026 The Authgate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package authz

// Built-in role names seeded at startup.
const (
	RoleAdmin     = "ADMIN"
	RoleUser      = "USER"
	RoleModerator = "MODERATOR"
)

// Well-known permission strings. Permissions are opaque identifiers;
// these constants only name the ones the seed roles use.
const (
	PermUserCreate = "USER_CREATE"
	PermUserRead   = "USER_READ"
	PermUserUpdate = "USER_UPDATE"
	PermUserDelete = "USER_DELETE"

	PermRoleCreate = "ROLE_CREATE"
	PermRoleRead   = "ROLE_READ"
	PermRoleUpdate = "ROLE_UPDATE"
	PermRoleDelete = "ROLE_DELETE"

	PermProductCreate = "PRODUCT_CREATE"
	PermProductRead   = "PRODUCT_READ"
	PermProductUpdate = "PRODUCT_UPDATE"
	PermProductDelete = "PRODUCT_DELETE"

	PermProfileRead   = "PROFILE_READ"
	PermProfileUpdate = "PROFILE_UPDATE"

	PermContentModerate = "CONTENT_MODERATE"
	PermSystemManage    = "SYSTEM_MANAGE"
)

// AdminPermissions is the seed permission set for the ADMIN role.
var AdminPermissions = []string{
	PermUserCreate,
	PermUserRead,
	PermUserUpdate,
	PermUserDelete,
	PermRoleCreate,
	PermRoleRead,
	PermRoleUpdate,
	PermRoleDelete,
	PermProductCreate,
	PermProductRead,
	PermProductUpdate,
	PermProductDelete,
	PermSystemManage,
}

// UserPermissions is the seed permission set for the USER role.
var UserPermissions = []string{
	PermProductRead,
	PermProfileRead,
	PermProfileUpdate,
}

// ModeratorPermissions is the seed permission set for the MODERATOR role.
var ModeratorPermissions = []string{
	PermUserRead,
	PermUserUpdate,
	PermProductCreate,
	PermProductRead,
	PermProductUpdate,
	PermContentModerate,
}
