package model

type LinkCredentialRequest struct {
	Service       string `json:"service"`
	ServiceUserID string `json:"service_user_id"`
}

type LinkCredentialResponse struct {
	AdoptedAccountRef string `json:"adopted_account_ref,omitempty"`
}

type FindDuplicatesRequest struct{}

type DuplicateGroup struct {
	AccountRef string `json:"account_ref"`
	Users      []User `json:"users"`
}

type FindDuplicatesResponse struct {
	Groups []DuplicateGroup `json:"groups"`
}

type MergeUsersRequest struct {
	KeepUserID   string `json:"keep_user_id"`
	DeleteUserID string `json:"delete_user_id"`
}

type MergeUsersResponse struct {
	Log []string `json:"log"`
}

type MergeAllRequest struct{}

type MergeAllResponse struct {
	MergedGroups int      `json:"merged_groups"`
	Log          []string `json:"log"`
}
