package adminmeta

// MetaQuery fetches the admin description of every list.
const MetaQuery = `query AdminMeta {
  keystone {
    adminMeta {
      lists {
        key
        itemQueryName
        listQueryName
        initialSort {
          field
          direction
        }
        path
        label
        singular
        plural
        description
        initialColumns
        pageSize
        labelField
        isSingleton
        groups {
          label
          description
          fields {
            path
          }
        }
        graphql {
          names {
            outputTypeName
            whereInputName
            whereUniqueInputName
            createInputName
            createMutationName
            createManyMutationName
            relateToOneForCreateInputName
            relateToManyForCreateInputName
            itemQueryName
            listQueryName
            listQueryCountName
            listOrderName
            updateInputName
            updateMutationName
            updateManyInputName
            updateManyMutationName
            relateToOneForUpdateInputName
            relateToManyForUpdateInputName
            deleteMutationName
            deleteManyMutationName
          }
        }
        fields {
          path
          label
          description
          fieldMeta
          viewsIndex
          customViewsIndex
          search
          isNonNull
          createView {
            fieldMode
          }
          itemView {
            fieldMode
            fieldPosition
          }
          listView {
            fieldMode
          }
          isOrderable
          isFilterable
        }
        hideNavigation
        hideCreate
        hideDelete
      }
    }
  }
}`

// ItemViewSelection is appended to item queries to resolve the per item
// field modes of a list. It expects $listKey and $id variables.
const ItemViewSelection = `keystone {
    adminMeta {
      list(key: $listKey) {
        hideCreate
        hideDelete
        fields {
          path
          itemView(id: $id) {
            fieldMode
            fieldPosition
          }
        }
      }
    }
  }`
