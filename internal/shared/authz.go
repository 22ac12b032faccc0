package shared

// Permission names stored in the permissions table.
const (
	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermActivityView = "activity.view"

	PermSuppliersView        = "suppliers.view"
	PermSuppliersCreate      = "suppliers.create"
	PermSuppliersEdit        = "suppliers.edit"
	PermSuppliersDelete      = "suppliers.delete"
	PermSuppliersImport      = "suppliers.import"
	PermSuppliersExport      = "suppliers.export"
	PermSuppliersDocuments   = "suppliers.documents"
	PermSuppliersWorkflow    = "suppliers.workflow"
	PermSuppliersPerformance = "suppliers.performance"
)

// CoreScopes lists user-management permissions.
func CoreScopes() []string {
	return []string{PermUsersView, PermUsersEdit, PermActivityView}
}

// SupplierScopes lists every supplier permission.
func SupplierScopes() []string {
	return []string{
		PermSuppliersView,
		PermSuppliersCreate,
		PermSuppliersEdit,
		PermSuppliersDelete,
		PermSuppliersImport,
		PermSuppliersExport,
		PermSuppliersDocuments,
		PermSuppliersWorkflow,
		PermSuppliersPerformance,
	}
}
